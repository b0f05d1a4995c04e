package main

import "github.com/fcanata61/minipm/internal/minipm"

func main() {
	minipm.Main()
}
