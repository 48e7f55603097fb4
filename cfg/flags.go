// Copyright 2024 CacheFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers CacheFS's flags on flagSet and binds each to the
// matching viper key.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("target", "t", "", "Path to the backing directory to cache. Required.")
	if err = viper.BindPFlag("target", flagSet.Lookup("target")); err != nil {
		return err
	}

	flagSet.StringP("cache", "c", "", "Path to the cache root. Defaults to a hash of the target under ~/.cachefs.")
	if err = viper.BindPFlag("cache", flagSet.Lookup("cache")); err != nil {
		return err
	}

	flagSet.BoolP("foreground", "f", true, "Run in the foreground. CacheFS does not support daemonizing.")
	if err = viper.BindPFlag("foreground", flagSet.Lookup("foreground")); err != nil {
		return err
	}

	flagSet.BoolP("debug", "d", false, "Log filesystem callbacks at TRACE severity.")
	if err = viper.BindPFlag("debug", flagSet.Lookup("debug")); err != nil {
		return err
	}

	flagSet.Bool("allow-other", false, "Allow users other than the mount owner to access the filesystem.")
	if err = viper.BindPFlag("allow-other", flagSet.Lookup("allow-other")); err != nil {
		return err
	}

	flagSet.Bool("read-only", false, "Reject writes; serve reads only.")
	if err = viper.BindPFlag("read-only", flagSet.Lookup("read-only")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to a log file. Empty means log to stderr.")
	if err = viper.BindPFlag("logging.file", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.String("log-format", DefaultLogFormat, "Log format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-severity", DefaultLogSeverity, "Minimum severity to log: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	return nil
}
