// Package config loads the execution context settings from an optional
// yaml file and ASYNCTASK_* environment variables, validates them and turns
// them into a core.ExecutionContextConfig. A Loader can also watch the file
// and report every change.
package config
