package actuator

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/micmonay/keybd_event"
)

// ErrUnknownKey is returned for key names with no host key code.
var ErrUnknownKey = errors.New("actuator: unknown key")

// uinputSettle is how long a fresh Linux uinput device needs before the
// desktop starts delivering its events.
const uinputSettle = 2 * time.Second

func init() {
	Register("keybd", "inject key events into the host keyboard", func(logger *log.Logger) (Backend, error) {
		return NewKeybd(logger)
	})
}

// keySpec is a resolved key: zero or more key codes plus modifiers.
type keySpec struct {
	codes []int
	shift bool
	ctrl  bool
	alt   bool
}

var namedKeys = map[string]keySpec{
	"space": {codes: []int{keybd_event.VK_SPACE}},
	"enter": {codes: []int{keybd_event.VK_ENTER}},
	"tab":   {codes: []int{keybd_event.VK_TAB}},
	"esc":   {codes: []int{keybd_event.VK_ESC}},
	"shift": {shift: true},
	"ctrl":  {ctrl: true},
	"alt":   {alt: true},
}

var charKeys = map[rune]int{
	'a': keybd_event.VK_A, 'b': keybd_event.VK_B, 'c': keybd_event.VK_C, 'd': keybd_event.VK_D,
	'e': keybd_event.VK_E, 'f': keybd_event.VK_F, 'g': keybd_event.VK_G, 'h': keybd_event.VK_H,
	'i': keybd_event.VK_I, 'j': keybd_event.VK_J, 'k': keybd_event.VK_K, 'l': keybd_event.VK_L,
	'm': keybd_event.VK_M, 'n': keybd_event.VK_N, 'o': keybd_event.VK_O, 'p': keybd_event.VK_P,
	'q': keybd_event.VK_Q, 'r': keybd_event.VK_R, 's': keybd_event.VK_S, 't': keybd_event.VK_T,
	'u': keybd_event.VK_U, 'v': keybd_event.VK_V, 'w': keybd_event.VK_W, 'x': keybd_event.VK_X,
	'y': keybd_event.VK_Y, 'z': keybd_event.VK_Z,
	'0': keybd_event.VK_0, '1': keybd_event.VK_1, '2': keybd_event.VK_2, '3': keybd_event.VK_3,
	'4': keybd_event.VK_4, '5': keybd_event.VK_5, '6': keybd_event.VK_6, '7': keybd_event.VK_7,
	'8': keybd_event.VK_8, '9': keybd_event.VK_9,
}

var functionKeys = []int{
	keybd_event.VK_F1, keybd_event.VK_F2, keybd_event.VK_F3, keybd_event.VK_F4,
	keybd_event.VK_F5, keybd_event.VK_F6, keybd_event.VK_F7, keybd_event.VK_F8,
	keybd_event.VK_F9, keybd_event.VK_F10, keybd_event.VK_F11, keybd_event.VK_F12,
}

// lookupKey resolves a settings key name ("space", "shift", "q", "f5").
func lookupKey(name string) (keySpec, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if spec, ok := namedKeys[n]; ok {
		return spec, nil
	}
	if r := []rune(n); len(r) == 1 {
		if code, ok := charKeys[r[0]]; ok {
			return keySpec{codes: []int{code}}, nil
		}
	}
	var fn int
	if _, err := fmt.Sscanf(n, "f%d", &fn); err == nil && fn >= 1 && fn <= len(functionKeys) && n == fmt.Sprintf("f%d", fn) {
		return keySpec{codes: []int{functionKeys[fn-1]}}, nil
	}
	return keySpec{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// ValidKey reports whether name resolves to a host key.
func ValidKey(name string) bool {
	_, err := lookupKey(name)
	return err == nil
}

// Keybd drives the host keyboard through keybd_event.
// The bonding is shared, so each transition reconfigures it under a lock.
type Keybd struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

// NewKeybd opens the host input device.
func NewKeybd(logger *log.Logger) (*Keybd, error) {
	if logger == nil {
		logger = log.Default()
	}
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "linux" {
		logger.Debug("waiting for uinput device", "delay", uinputSettle)
		time.Sleep(uinputSettle)
	}
	return &Keybd{kb: kb}, nil
}

// Press holds key down.
func (k *Keybd) Press(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.bind(key); err != nil {
		return err
	}
	return k.kb.Press()
}

// Release lets key go.
func (k *Keybd) Release(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.bind(key); err != nil {
		return err
	}
	return k.kb.Release()
}

// bind must be called with k.mu held.
func (k *Keybd) bind(key string) error {
	spec, err := lookupKey(key)
	if err != nil {
		return err
	}
	k.kb.Clear()
	k.kb.SetKeys(spec.codes...)
	k.kb.HasSHIFT(spec.shift)
	k.kb.HasCTRL(spec.ctrl)
	k.kb.HasALT(spec.alt)
	return nil
}
