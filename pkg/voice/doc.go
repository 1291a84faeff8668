// Package voice orchestrates conversational turns.
//
// An Agent accepts input from two places, text submitted with Submit and
// utterances delivered by the transcription adapter, and turns each into a
// Turn stamped with a strictly increasing command id. Creating a turn stops
// any speech in progress and cancels the previous turn's agent call. After
// the agent answers, the turn's id is compared with the current counter; a
// superseded turn ends silently, with no listener notifications and no
// speech.
//
// # Usage
//
//	orch, err := voice.New(
//	    voice.WithResponder(agentAdapter),
//	    voice.WithMicrophone(detector),
//	    voice.WithTranscriber(transcriber),
//	    voice.WithSpeaker(speechController),
//	    voice.WithSleep(sleepMode),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Close()
//
//	orch.OnAgentComplete(func(t voice.Turn) {
//	    fmt.Printf("%s -> %s\n", t.Input, t.Output)
//	})
//
//	orch.SetPrompt("Hallo")
//	if err := orch.Submit(ctx); err != nil {
//	    log.Printf("turn failed: %v", err)
//	}
//
// # Microphone muting
//
// The robot must not hear itself. The Agent mutes the microphone when speech
// starts and unmutes it when speech ends, unless the robot is asleep. Going
// to sleep mutes at once; waking unmutes only if nothing is being spoken.
//
// # Metrics
//
// Every finished turn is recorded in Metrics, exported in the Prometheus
// text format by Metrics.Handler:
//
//	last := orch.Metrics().Last()
//	fmt.Println(last.FormatLatency())
package voice
