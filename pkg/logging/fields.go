package logging

import "log/slog"

// Domain identifiers

func Room(id string) slog.Attr {
	return slog.String("room_id", id)
}

func Sender(id string) slog.Attr {
	return slog.String("sender", id)
}

func ClientMsg(id string) slog.Attr {
	return slog.String("client_msg_id", id)
}

func MessageID(id string) slog.Attr {
	return slog.String("message_id", id)
}

// Transport

func Destination(dest string) slog.Attr {
	return slog.String("destination", dest)
}

func Topic(name string) slog.Attr {
	return slog.String("topic", name)
}

func State(s string) slog.Attr {
	return slog.String("state", s)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
