package bus

// Keyer lo implementan los mensajes que saben cuál es su clave de partición.
// Los sinks (Kafka, NATS) la usan como key o sufijo de subject.
type Keyer interface {
	PartitionKey() string
}
