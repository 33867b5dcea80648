package main

import (
	"os"

	"github.com/joho/godotenv"

	"joinpounce/cmd/pounce/cmd"
)

func main() {
	_ = godotenv.Load()
	os.Exit(cmd.Execute())
}
