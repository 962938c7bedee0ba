// Command marqueectl inspects pagination windows and runs catalog searches
// against the movie API from the terminal.
package main

func main() {
	Execute()
}
