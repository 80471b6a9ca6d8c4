package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4343"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 */6 * * *"`

	// Pfad zur YAML-Regeldatei (Alias-Tabelle, Exclusions, Phrase-Sets).
	// Leer = eingebaute Defaults.
	RulesPath string `envconfig:"RULES_PATH"`

	// Eigene Adressen des Betreibers: werden nie als Gutachter geclustert.
	OwnAddresses string `envconfig:"OWN_ADDRESSES"`

	// Review-Fenster ab Annahme, in Monaten.
	ReviewWindowMonths int `envconfig:"REVIEW_WINDOW_MONTHS" default:"3"`
	// Ab wie vielen akzeptierten Gutachtern ein Manuskript als voll besetzt gilt.
	AcceptedRefereeTarget int `envconfig:"ACCEPTED_REFEREE_TARGET" default:"2"`

	// Anzahl paralleler Worker für die Reconciliation.
	ReconcileWorkers int `envconfig:"RECONCILE_WORKERS" default:"4"`

	StratoS3Key    string `envconfig:"STRATO_S3_KEY" required:"true"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET" required:"true"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL" required:"true"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION" required:"true"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET" required:"true"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// OwnAddressList zerlegt OWN_ADDRESSES in eine bereinigte Adressliste.
func (c *Config) OwnAddressList() []string {
	var out []string
	for _, a := range strings.Split(c.OwnAddresses, ",") {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
