// Package openairt is a WebSocket client for the OpenAI Realtime API,
// tuned for telephony: G.711 µ-law in and out, server-side turn
// detection, and function calling.
//
// Connect, configure the session, then pump audio both ways:
//
//	client := openairt.NewClient(apiKey)
//	sess, err := client.Connect(ctx, &openairt.ConnectConfig{
//	    Model: openairt.ModelGPTRealtime,
//	})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	err = sess.UpdateSession(&openairt.SessionConfig{
//	    Instructions:      "You answer phone calls for Acme.",
//	    Voice:             openairt.VoiceAlloy,
//	    InputAudioFormat:  openairt.AudioFormatG711ULaw,
//	    OutputAudioFormat: openairt.AudioFormatG711ULaw,
//	    TurnDetection:     &openairt.TurnDetection{Type: openairt.VADSemantic},
//	})
//
//	for event, err := range sess.Events() {
//	    if err != nil {
//	        return err
//	    }
//	    switch event.Type {
//	    case openairt.EventTypeResponseAudioDelta:
//	        play(event.Audio)
//	    case openairt.EventTypeInputAudioBufferSpeechStarted:
//	        stopPlayback()
//	    }
//	}
package openairt
