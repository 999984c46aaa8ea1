package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	BaseURL string
	WSURL   string
	Timeout time.Duration
}

type Storage struct {
	// StateDir holds everything the client persists: the device
	// fingerprint file and the my-polls database.
	StateDir string
}

type Config struct {
	API     API
	Storage Storage
}

const logtag = "[config]"

func Load() *Config {
	configPath := flag.String("config", "", "path to env file")
	flag.Parse()

	if *configPath != "" {
		if err := godotenv.Load(*configPath); err != nil {
			log.Fatalf("%s err loading env from file : %v", logtag, err)
		}
		log.Printf("%s using env from : %s", logtag, *configPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		API:     *newAPI(),
		Storage: *newStorage(),
	}

	return cfg
}

func newAPI() *API {
	base := getenv("FASTVOTE_API_URL", "http://localhost:8000/api")
	ws := os.Getenv("FASTVOTE_WS_URL")
	if ws == "" {
		ws = deriveWSURL(base)
	}

	timeoutSecs, err := strconv.Atoi(getenv("HTTP_TIMEOUT_SECONDS", "30"))
	if err != nil || timeoutSecs <= 0 {
		timeoutSecs = 30
	}

	return &API{
		BaseURL: strings.TrimSuffix(base, "/"),
		WSURL:   strings.TrimSuffix(ws, "/"),
		Timeout: time.Duration(timeoutSecs) * time.Second,
	}
}

// The push channel lives on the same host as the REST API, one level above
// the /api prefix.
func deriveWSURL(apiURL string) string {
	ws := apiURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimSuffix(ws, "/api")
}

func newStorage() *Storage {
	defaultDir := ".fastvote"
	if home, err := os.UserHomeDir(); err == nil {
		defaultDir = filepath.Join(home, ".fastvote")
	}

	return &Storage{
		StateDir: getenv("FASTVOTE_STATE_DIR", defaultDir),
	}
}

func getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}
