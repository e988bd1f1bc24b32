// Command loqa-scribe dictates notes by voice and manages the stored note
// collection.
package main

func main() {
	Execute()
}
