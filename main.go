package main

import "github.com/username/ledgerdesk/backend/cmd"

func main() {
	cmd.Execute()
}
