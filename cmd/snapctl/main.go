package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/siqueiraa/KafSnap/pkg/control"
)

type topicList []string

func (t *topicList) String() string { return strings.Join(*t, ",") }

func (t *topicList) Set(value string) error {
	*t = append(*t, value)
	return nil
}

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "control address of the running daemon")
	pause := flag.Bool("pause", false, "stop buffering new messages until resumed or a write is triggered")
	resume := flag.Bool("resume", false, "resume buffering new messages, writing over older messages as needed")
	trigger := flag.Bool("trigger-write", false, "write buffered messages for the selected topics to a bag file")
	filename := flag.String("filename", "", "output file name; current date/time and .bag are appended unless it already ends in .bag")
	var topics topicList
	flag.Var(&topics, "topic", "topic to write; repeatable; all buffered topics when omitted")
	flag.Parse()

	actions := 0
	for _, selected := range []bool{*pause, *resume, *trigger} {
		if selected {
			actions++
		}
	}
	if actions != 1 {
		log.Fatalf("exactly one of -pause, -resume, -trigger-write is required")
	}

	client := control.NewClient(*addr)

	var (
		response control.Response
		err      error
	)
	switch {
	case *pause:
		response, err = client.SetRecording(false)
	case *resume:
		response, err = client.SetRecording(true)
	case *trigger:
		response, err = client.TriggerSnapshot(topics, *filename)
	}
	if err != nil {
		log.Fatalf("control request failed: %v", err)
	}

	fmt.Println(response.Message)
	if !response.OK {
		os.Exit(1)
	}
}
