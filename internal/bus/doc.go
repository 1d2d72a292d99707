/*
Bus routes typed events from producers to listeners.

# Module
  - registry: capability based registration, frozen before delivery
  - concurrent engine: bounded queue per category over a shared worker pool
  - sync engine: in-line delivery in publish order
  - emitter: stamps source, sequence, trace and receive time

# Source
  - market data from the feed pump or the replay driver
  - timer events from the period clock
  - orders, executions and model output from strategy code

# Produce
  - listener callbacks per category
*/
package bus
