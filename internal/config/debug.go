package config

import "os"

func IsDebug() bool {
	return os.Getenv("LOCALRAG_DEBUG") == "1"
}
