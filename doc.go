package main

// apiload generates HTTP load against the bot analytics API and can trace
// every request it sends. It is configured entirely from the command line,
// the environment, or a YAML file:
//
// - users is the number of simulated users running at the same time.
// - spawnrate is how many users are started (and, when the run time is up,
// stopped) per second.
// - runtime is the total duration of the run, counted from the first user
// (0 means no limit).
// - iterations is the total number of tasks to run across all users (0
// means no limit).
// - minwait and maxwait bound the uniformly distributed pause a user takes
// between two tasks.
//
// Every user runs the same three tasks, picked at random in proportion to
// their weights:
// #   - write (10): POST /api/log, JSON body {botId, chatId, userId, text}
// #     with chatId and userId drawn from [1, 1000]
// #   - search (1): GET /api/search?textQuery=locust
// #   - stats (2): GET /api/stats/locust-test
//
// Tracing is chosen with --sender:
// #   - otel: OTLP over http or grpc to OTEL_EXPORTER_OTLP_TRACES_ENDPOINT
// #   - launcher: the same, configured by otel-config-go from OTEL_* env
// #   - honeycomb: beeline spans sent to Honeycomb
// #   - print: spans written to stdout
// #   - none: no tracing
// With tracing on, each request is wrapped in a span named after its method
// and endpoint, and the http transport is instrumented so that the client
// span of the request is its child.

// Functionally, every user is a goroutine that takes a ticket from the
// iteration counter, runs one task through the shared Client, records the
// outcome in Stats, and sleeps. The Swarm only decides how many of those
// goroutines exist at any time.
