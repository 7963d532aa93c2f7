package ws

type WelcomeResponse struct {
	Message string `json:"message"`
}
