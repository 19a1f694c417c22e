package main

import (
	"github.com/upsync-dev/upsync/cmd"
)

func main() {
	cmd.Execute()
}
