// Package kafka implements broker.Broker on Apache Kafka through IBM/sarama.
//
// Publishing uses an idempotent SyncProducer. PublishKeyed sets the record
// key, so every command for one appointment lands on the same partition and
// is handled by a single consumer of the group in order. Subscribe joins the
// consumer group "<GroupID>.<topic>" and marks each message once its handler returns;
// retries belong to command.Router, which republishes failed envelopes.
//
//	b, err := kafka.New(kafka.Config{Brokers: []string{"localhost:9092"}, GroupID: "clinicflow"})
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//	router := command.NewRouter(b, command.WithPartitionByEntity(true))
package kafka
