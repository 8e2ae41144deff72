package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "AGENDA_"

type Application struct {
	Server        Server        `koanf:"server"`
	Database      Database      `koanf:"db"`
	Scheduling    Scheduling    `koanf:"scheduling"`
	Notifications Notifications `koanf:"notifications"`
	Log           Log           `koanf:"log"`
}

type Server struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"readtimeout"`
	WriteTimeout time.Duration `koanf:"writetimeout"`
	IdleTimeout  time.Duration `koanf:"idletimeout"`
}

type Database struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Pass     string `koanf:"pass"`
	Name     string `koanf:"name"`
	Schema   string `koanf:"schema"`
	MaxConns int32  `koanf:"maxconns"`
	MinConns int32  `koanf:"minconns"`
}

// Scheduling tunes the event mutation service.
type Scheduling struct {
	MaxBatchSize int `koanf:"maxbatchsize"`
	// BatchSiblingCheck makes batch creation also reject items that overlap each other.
	BatchSiblingCheck bool `koanf:"batchsiblingcheck"`
	ListDefaultLimit  int  `koanf:"listdefaultlimit"`
	ListMaxLimit      int  `koanf:"listmaxlimit"`
	MaxOccurrences    int  `koanf:"maxoccurrences"`
}

type Notifications struct {
	// RetentionDays is how long seen notifications are kept. Zero disables purging.
	RetentionDays int    `koanf:"retentiondays"`
	PurgeSchedule string `koanf:"purgeschedule"`
}

type Log struct {
	Level string `koanf:"level"`
}

func Defaults() Application {
	return Application{
		Server: Server{
			Addr:         ":8181",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "agenda",
			Pass:     "",
			Name:     "agenda",
			Schema:   "agenda",
			MaxConns: 25,
			MinConns: 5,
		},
		Scheduling: Scheduling{
			MaxBatchSize:      100,
			BatchSiblingCheck: false,
			ListDefaultLimit:  10,
			ListMaxLimit:      100,
			MaxOccurrences:    500,
		},
		Notifications: Notifications{
			RetentionDays: 30,
			PurgeSchedule: "@daily",
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
