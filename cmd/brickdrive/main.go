package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/brickdrive/brickdrive/cmd/brickdrive/app"
)

func main() {
	app.NewApp().Run()
}
