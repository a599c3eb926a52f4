package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            int      `yaml:"port"`
	Origin          string   `yaml:"origin"`
	Metastore       string   `yaml:"metastore"`
	Entitystore     string   `yaml:"entitystore"`
	DefaultTTL      int      `yaml:"defaultTtl"`
	PrivateHeaders  []string `yaml:"privateHeaders"`
	AllowReload     bool     `yaml:"allowReload"`
	AllowRevalidate bool     `yaml:"allowRevalidate"`
	Quiet           bool     `yaml:"quiet"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
