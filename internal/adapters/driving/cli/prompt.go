package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command's input.
type prompter struct {
	cmd    *cobra.Command
	reader *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{cmd: cmd, reader: bufio.NewReader(cmd.InOrStdin())}
}

// ask prints the question and returns the trimmed answer, or def when the
// answer is empty.
func (p *prompter) ask(question, def string) (string, error) {
	if def != "" {
		p.cmd.Printf("%s [%s]: ", question, def)
	} else {
		p.cmd.Printf("%s: ", question)
	}
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// askSecret reads without echo when input is a terminal. An empty answer
// keeps def.
func (p *prompter) askSecret(question, def string) (string, error) {
	if def != "" {
		p.cmd.Printf("%s [keep current]: ", question)
	} else {
		p.cmd.Printf("%s: ", question)
	}

	var answer string
	if f, ok := p.cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		p.cmd.Println()
		if err != nil {
			return "", err
		}
		answer = strings.TrimSpace(string(secret))
	} else {
		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		answer = line
	}

	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// readLine returns one trimmed line. A final line without a newline is
// accepted; EOF with nothing read is an error.
func (p *prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
