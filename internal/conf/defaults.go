package conf

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultCrops is the supported crop allow-list. English names and the
// Korean names sent by the mobile client are both accepted.
var DefaultCrops = []string{
	"tomato", "strawberry", "cucumber", "pepper", "paprika",
	"토마토", "딸기", "오이", "고추", "파프리카",
}

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "cropdoc")
	viper.SetDefault("main.timezone", "Asia/Seoul")

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/cropdoc.log")

	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.bodylimit", "10M")
	viper.SetDefault("webserver.readtimeout", 30*time.Second)
	viper.SetDefault("webserver.writetimeout", 60*time.Second)
	viper.SetDefault("webserver.metrics", true)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.slowquerythreshold", 200*time.Millisecond)
	viper.SetDefault("database.sqlite.path", "cropdoc.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.database", "cropdoc")

	viper.SetDefault("ncpms.baseurl", "http://ncpms.rda.go.kr/npmsAPI/service")
	viper.SetDefault("ncpms.timeout", 10*time.Second)
	viper.SetDefault("ncpms.ratelimit", 5.0)
	viper.SetDefault("ncpms.burst", 5)

	viper.SetDefault("classifier.backend", "http")
	viper.SetDefault("classifier.http.url", "http://localhost:8500/v1/classify")
	viper.SetDefault("classifier.http.timeout", 30*time.Second)
	viper.SetDefault("classifier.tflite.threads", 0)

	viper.SetDefault("storage.backend", "minio")
	viper.SetDefault("storage.prefix", "diagnosis")
	viper.SetDefault("storage.maxuploadmb", 10)
	viper.SetDefault("storage.minio.endpoint", "localhost:9000")
	viper.SetDefault("storage.minio.bucket", "cropdoc")
	viper.SetDefault("storage.minio.usessl", false)

	viper.SetDefault("auth.expiry", 24*time.Hour)
	viper.SetDefault("auth.issuer", "cropdoc")

	viper.SetDefault("diagnosis.crops", DefaultCrops)
	viper.SetDefault("diagnosis.legacynotfound", false)
	viper.SetDefault("diagnosis.listconcurrency", 4)

	viper.SetDefault("resolver.cachettl", 0)

	viper.SetDefault("notification.timeout", 10*time.Second)
	viper.SetDefault("notification.push.enabled", false)
	viper.SetDefault("notification.mqtt.enabled", false)
	viper.SetDefault("notification.mqtt.clientid", "cropdoc")
	viper.SetDefault("notification.mqtt.topic", "cropdoc/diagnoses")

	viper.SetDefault("sentry.environment", "production")
}
