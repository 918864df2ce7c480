// Package config loads typed configuration from environment variables.
//
// It combines github.com/joho/godotenv, which reads optional .env files, with
// github.com/caarlos0/env/v11, which parses the environment into a struct
// using `env` and `envDefault` tags:
//
//	type appConfig struct {
//		Env       string `env:"APP_ENV" envDefault:"development"`
//		PlansFile string `env:"PLANS_FILE,required"`
//	}
//
//	var cfg appConfig
//	config.MustLoad(&cfg, config.WithEnvFiles(".env", ".env.local"))
//
// Values already exported in the process environment take precedence over
// the files. Errors wrap ErrParsingConfig or ErrLoadingEnvFile.
package config
