// Command taskrunner runs the single-operator task execution service:
// it loads configuration, wires the storage/guard/provider/sandbox/
// pipeline stack, starts the Telegram front-end, and serves until
// terminated.
package main

func main() {
	Execute()
}
