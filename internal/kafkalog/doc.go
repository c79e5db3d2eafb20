// Package kafkalog is the Kafka backend of streamlog, built on franz-go.
//
// A log is the topic TopicPrefix+name and a consumer group is the Kafka
// group TopicPrefix+group, so several deployments can share a cluster.
// Partitions map one to one. Tailers created over explicit partitions
// consume them directly and commit through the admin API; subscribed
// tailers join a Kafka consumer group with auto commit disabled.
package kafkalog
