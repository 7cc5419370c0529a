// Package config loads the chat client's configuration file.
//
// The file is YAML by default, or TOML when its name ends in .toml. Its
// location is $COVEN_CHAT_CONFIG, else $XDG_CONFIG_HOME/coven/chat.yaml,
// else ~/.config/coven/chat.yaml (see DefaultPath).
//
// # Loading order
//
//  1. Read the file.
//  2. Load .env beside the file and .env in the working directory. Variables
//     already in the environment win.
//  3. Expand ${VAR} references. Unset variables expand to "".
//  4. Unmarshal, parse duration strings, apply defaults, Validate.
//
// # Example
//
//	server:
//	  base_url: "https://chat.example.com"
//	session:
//	  token: "${COVEN_CHAT_TOKEN}"
//	realtime:
//	  max_attempts: 5
//	  base_delay: "3s"
//
// Reconnection waits base_delay times the attempt number, so the defaults
// retry after 3, 6, 9, 12 and 15 seconds before giving up.
package config
