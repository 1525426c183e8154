// Package feedback implements the fire-and-forget feedback pipeline: the
// service validates and publishes ratings to a queue, and a background
// pipeline consumes them into the feedback repository. RabbitMQ backs the
// queue in production; a channel-based queue serves development and tests.
package feedback
