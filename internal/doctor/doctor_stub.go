//go:build !whisper

package doctor

func checkPortAudio() Result {
	return Result{Name: "portaudio runtime", Pass: false, Detail: "not compiled in; rebuild with -tags whisper"}
}
