package main

import (
	"os"

	"horse.fit/corpus/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
