/*
Recorder persists bus events in Write Append Log segments and plays them back.

# Module
  - writer: single goroutine appender with size based segment rotation
  - reader: validates frames and stops at a truncated tail
  - playback: replays segments in order, optionally paced by event time
  - history source: serves recorded market data to the replay driver

# Source
  - every category routed to the persist listener

# Produce
  - segment files named <prefix>-<start time>-<index>.wal
*/
package recorder
