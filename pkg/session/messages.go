package session

import "github.com/teslashibe/go-lazarillo/pkg/settings"

// Prompt identifies a spoken message.
type Prompt string

const (
	PromptIdle       Prompt = "idle"
	PromptScanning   Prompt = "scanning"
	PromptSettings   Prompt = "settings"
	PromptPermission Prompt = "permission"
)

var messages = map[settings.Language]map[Prompt]string{
	settings.Spanish: {
		PromptIdle:       "Toca dos veces la pantalla para comenzar a escanear.",
		PromptScanning:   "Escaneo iniciado.",
		PromptSettings:   "Configuración.",
		PromptPermission: "Se necesita permiso para usar la cámara. Toca reintentar.",
	},
	settings.English: {
		PromptIdle:       "Double tap the screen to start scanning.",
		PromptScanning:   "Scanning started.",
		PromptSettings:   "Settings.",
		PromptPermission: "Camera permission is needed. Tap retry.",
	},
}

// Message returns the localized text for p, falling back to Spanish.
func Message(lang settings.Language, p Prompt) string {
	if m, ok := messages[lang]; ok {
		if s, ok := m[p]; ok {
			return s
		}
	}
	return messages[settings.Spanish][p]
}
