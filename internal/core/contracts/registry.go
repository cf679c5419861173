package contracts

// TopicHandler receives raw frame bodies, one method per subscribed topic.
type TopicHandler interface {
	OnMessage(body []byte)
	OnReceipt(body []byte)
	OnStatus(body []byte)
	OnOnlineUsers(body []byte)
	OnTyping(body []byte)
	OnError(body []byte)
}
