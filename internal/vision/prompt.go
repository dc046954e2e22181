package vision

import (
	"fmt"
	"strconv"
	"strings"
)

func buildPrompt(mode string, slots []int) string {
	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = strconv.Itoa(s)
	}
	var b strings.Builder
	b.WriteString("You are DuumGPT. Analyze Borderlands 4 item screenshots/photos.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Return null for any field you cannot read. Do NOT guess.\n")
	b.WriteString("- If an image is not a BL4 item screen, set item_kind=\"unknown\" and add a note.\n")
	b.WriteString("- \"verdict\" is for the batch; \"items\" is per image.\n")
	b.WriteString("- Return exactly one item per image, in order, using the slot numbers given below.\n")
	fmt.Fprintf(&b, "Image slots, in order: %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(&b, "Mode: %s", mode)
	return b.String()
}
