package main

import (
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	session "github.com/voxprep/voxprep-core/core"
	"github.com/voxprep/voxprep-core/core/audio"
	"github.com/voxprep/voxprep-core/core/audio/miniaudio"
	"github.com/voxprep/voxprep-core/core/audio/portaudio"
	"github.com/voxprep/voxprep-core/core/scrape"
)

type appConfig struct {
	backendURL  string
	model       string
	endpoint    string
	apiKey      string
	audioDriver string
}

func loadConfig() appConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	config := appConfig{
		backendURL:  "http://localhost:8000/api",
		audioDriver: "miniaudio",
	}
	if url, ok := os.LookupEnv("VOXPREP_BACKEND_URL"); ok {
		config.backendURL = url
	}
	if model, ok := os.LookupEnv("VOXPREP_MODEL"); ok {
		config.model = model
	}
	if endpoint, ok := os.LookupEnv("VOICE_LIVE_ENDPOINT"); ok {
		config.endpoint = endpoint
	}
	if apiKey, ok := os.LookupEnv("VOICE_LIVE_API_KEY"); ok {
		config.apiKey = apiKey
	}
	if driver, ok := os.LookupEnv("VOXPREP_AUDIO_DRIVER"); ok {
		config.audioDriver = driver
	}
	return config
}

func audioFactory(driver string) func() (session.AudioDevice, error) {
	switch driver {
	case "portaudio":
		return func() (session.AudioDevice, error) { return portaudio.NewClient(audio.FrameSamples) }
	default:
		return func() (session.AudioDevice, error) { return miniaudio.NewClient() }
	}
}

func main() {
	config := loadConfig()

	// Scrape updates observed mid-session are forwarded to the assistant.
	var controller *session.Controller
	collector := scrape.NewCollector(scrape.WithUpdateHandler(func(context scrape.ProblemContext) {
		if controller != nil {
			controller.UpdateContext(context)
		}
	}))

	controller = session.NewController(config.backendURL,
		session.WithAudioDeviceFactory(audioFactory(config.audioDriver)),
		session.WithContextProvider(collector),
	)

	program := tea.NewProgram(newModel(controller, config), tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "voxprep: %v\n", err)
		os.Exit(1)
	}
}
