package utils

import (
	"strconv"

	"github.com/unionhall/hall-app/conf"
)

func GetEnvInt(varName string, defaultVal int) int {
	v := conf.GetEnv(varName)
	if v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultVal
}

func GetEnvFloat(varName string, defaultVal float64) float64 {
	v := conf.GetEnv(varName)
	if v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultVal
}

func GetEnvString(varName, defaultVal string) string {
	if v := conf.GetEnv(varName); v != "" {
		return v
	}
	return defaultVal
}
