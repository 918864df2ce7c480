// Package environment names the deployment environments a process can run in
// and normalizes the APP_ENV value into one of them.
package environment
