package transport

import (
	"yukkuri/internal/log"
)

// LoggingTransport writes events to the leveled logger at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the event.
func (lt *LoggingTransport) Send(ev Event) error {
	switch ev.Kind {
	case KindProgress:
		log.Debugf("LOG_TRANSPORT: #%d progress %.0f%% %s", ev.Seq, ev.Percent, ev.Message)
	case KindResult:
		log.Debugf("LOG_TRANSPORT: #%d result %s tier=%s err=%q", ev.Seq, ev.Path, ev.Tier, ev.Error)
	default:
		log.Debugf("LOG_TRANSPORT: #%d %s", ev.Seq, ev.Message)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
