package synthesis

// MessageCutoff estimates how much of text was spoken after seconds of playback, assuming
// characters are spread evenly over totalBytes of audio played at bytesPerSecond.
func MessageCutoff(text string, seconds float64, totalBytes, bytesPerSecond int) string {
	runes := []rune(text)
	// NaN and negative playback count as nothing spoken
	if len(runes) == 0 || !(seconds > 0) {
		return ""
	}
	if totalBytes <= 0 || bytesPerSecond <= 0 {
		return text
	}

	total := float64(totalBytes) / float64(bytesPerSecond)
	if seconds >= total {
		return text
	}

	n := max(0, min(int(seconds*float64(len(runes))/total), len(runes)))
	return string(runes[:n])
}
