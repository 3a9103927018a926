package transcribe

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"go.uber.org/zap"

	"github.com/ClareAI/astra-call-bridge/pkg/logger"
)

// AWSStreamer streams call audio to Amazon Transcribe.
type AWSStreamer struct {
	client *transcribestreaming.Client
}

// NewAWSStreamer builds a Transcribe client for the given region using
// the default credential chain. AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY
// in the environment take precedence when both are set.
func NewAWSStreamer(ctx context.Context, region string) (*AWSStreamer, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if key, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &AWSStreamer{client: transcribestreaming.NewFromConfig(cfg)}, nil
}

// Open starts a streaming transcription session.
func (s *AWSStreamer) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	out, err := s.client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(cfg.LanguageCode),
		MediaEncoding:        types.MediaEncodingPcm,
		MediaSampleRateHertz: aws.Int32(cfg.SampleRateHz),
	})
	if err != nil {
		return nil, fmt.Errorf("start stream transcription: %w", err)
	}

	st := &awsStream{
		es:      out.GetStream(),
		results: make(chan Result, 16),
	}
	go st.readEvents()
	return st, nil
}

type awsStream struct {
	es      *transcribestreaming.StartStreamTranscriptionEventStream
	results chan Result
}

func (st *awsStream) Send(ctx context.Context, frame []byte) error {
	return st.es.Send(ctx, &types.AudioStreamMemberAudioEvent{
		Value: types.AudioEvent{AudioChunk: frame},
	})
}

func (st *awsStream) Results() <-chan Result { return st.results }

func (st *awsStream) Close() error { return st.es.Close() }

func (st *awsStream) Err() error { return st.es.Err() }

// readEvents pumps Transcribe result events into the results channel
// until the service closes the stream.
func (st *awsStream) readEvents() {
	defer close(st.results)
	for event := range st.es.Events() {
		te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok {
			logger.Base().Debug("ignoring unknown transcribe event", zap.String("type", fmt.Sprintf("%T", event)))
			continue
		}
		for _, result := range te.Value.Transcript.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			text := aws.ToString(result.Alternatives[0].Transcript)
			if text == "" {
				continue
			}
			st.results <- Result{Text: text, IsFinal: !result.IsPartial}
		}
	}
}

var _ Streamer = (*AWSStreamer)(nil)
