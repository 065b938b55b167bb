//go:build !test

package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.WithField("error", err).Error("hutch failed")
		os.Exit(1)
	}
}
