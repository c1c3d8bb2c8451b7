package ws

// ClientMsg é uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Owner: endereço do dono das apostas, obrigatório em subscribe/unsubscribe
type ClientMsg struct {
	Type  string `json:"type"`
	Owner string `json:"owner"`
}

// ServerMsg é a resposta de controle (ack, erro, pong)
type ServerMsg struct {
	Type  string `json:"type"` // subscribed | unsubscribed | pong | error
	Owner string `json:"owner,omitempty"`
	Error string `json:"error,omitempty"`
}
