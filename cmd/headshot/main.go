// Command headshot crops photos into headshots from the command line or over HTTP.
package main

func main() {
	Execute()
}
