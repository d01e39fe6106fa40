package config

import "os"

// ExpandEnv expands environment variables in YAML content with the standard
// library's ${VAR}/$VAR shell syntax. Missing variables expand to the empty string;
// validation is what catches a required field left blank by that.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
