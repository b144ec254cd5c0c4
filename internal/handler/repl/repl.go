package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"StockAction/internal/services/labeling"
	"StockAction/internal/usecase"
	applogger "StockAction/pkg/logger"
)

const prompt = "What ticker symbols would you like me to analyze?"

// Predictor is the slice of the prediction use case the loop needs.
type Predictor interface {
	PredictMany(ctx context.Context, symbols []string) []usecase.PredictionResult
	Vocabulary() []string
}

// Banner is what the loop tells the user before the first prompt.
type Banner struct {
	Title        string
	Symbols      []string
	Thresholds   []labeling.Level
	TestAccuracy float64
}

// Session reads whitespace-separated tickers line by line and prints a
// likelihood per action label for each, until the exit token.
type Session struct {
	pred      Predictor
	banner    Banner
	exitToken string
	in        io.Reader
	out       io.Writer
	l         *applogger.Logger
}

func NewSession(pred Predictor, banner Banner, exitToken string, in io.Reader, out io.Writer, l *applogger.Logger) *Session {
	if l == nil {
		l = applogger.Nop()
	}
	return &Session{pred: pred, banner: banner, exitToken: exitToken, in: in, out: out, l: l}
}

// Run loops until the exit token, end of input, or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	w := bufio.NewWriter(s.out)
	defer w.Flush()

	s.printBanner(w)
	scanner := bufio.NewScanner(s.in)
	for {
		fmt.Fprintln(w, prompt)
		if err := w.Flush(); err != nil {
			return err
		}
		if !scanner.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		symbols := dedupe(strings.Fields(scanner.Text()))
		fmt.Fprintln(w)
		if len(symbols) == 1 && strings.EqualFold(symbols[0], s.exitToken) {
			break
		}
		if len(symbols) == 0 {
			continue
		}
		s.l.Debug("repl query", applogger.Strings("symbols", symbols))
		for _, res := range s.pred.PredictMany(ctx, symbols) {
			s.printResult(w, res)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fmt.Fprintln(w, "Goodbye.")
	return nil
}

func (s *Session) printBanner(w io.Writer) {
	title := s.banner.Title
	fmt.Fprintf(w, "%s\n%s\n", title, strings.Repeat("=", len(title)))
	fmt.Fprintln(w, "I give predicted likelihoods for whether to buy, sell, or hold stock for the tickers you request.")
	if len(s.banner.Symbols) > 0 {
		fmt.Fprintln(w, "I was trained using these symbols:")
		for _, sym := range s.banner.Symbols {
			fmt.Fprintf(w, "\t%s\n", sym)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Here are the latest confidence-magnitudes for buy and sell actions:")
	for _, lv := range s.banner.Thresholds {
		fmt.Fprintf(w, "%-15s%s%%\n", lv.Label, strconv.FormatFloat(lv.Threshold*100, 'f', -1, 64))
	}
	fmt.Fprintln(w)

	vocab := s.pred.Vocabulary()
	chance := 0.0
	if len(vocab) > 0 {
		chance = 100.0 / float64(len(vocab))
	}
	fmt.Fprintf(w, "My latest validation accuracy was %.2f%%. Random chance is %.2f%%\n\n", s.banner.TestAccuracy*100, chance)
	fmt.Fprintln(w, "Enter your ticker symbols (not case-sensitive), separated by spaces. More tickers takes more time due to API-call limits.")
	fmt.Fprintln(w)
	final := fmt.Sprintf("When you're finished, just enter '%s' to exit.", s.exitToken)
	fmt.Fprintf(w, "%s\n%s\n\n\n", final, strings.Repeat("=", len(final)))
}

func (s *Session) printResult(w io.Writer, res usecase.PredictionResult) {
	if res.Err != nil {
		fmt.Fprintf(w, "%s: could not get a prediction (%v)\n\n", res.Symbol, res.Err)
		return
	}
	fmt.Fprintf(w, "%s profitable-action likelihoods:\n", res.Symbol)
	for _, label := range s.pred.Vocabulary() {
		pct := fmt.Sprintf("%.2f%%", res.Prediction.Probabilities[label]*100)
		fmt.Fprintf(w, "%-15s%s\n", pct, label)
	}
	fmt.Fprintln(w)
}

// dedupe keeps the first occurrence of each token, ignoring case.
func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		k := strings.ToUpper(t)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}
