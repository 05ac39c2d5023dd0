package handlers

// MockClient is a hub client without a network connection.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) getSendChannel() chan []byte { return m.SendChan }

func (m *MockClient) close() {}
