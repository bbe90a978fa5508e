// Command mudra serves sign language recognition over HTTP and drives the
// local camera pipeline.
package main

func main() {
	Execute()
}
