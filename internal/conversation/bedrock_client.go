package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockLLMClient implements StreamingLLMClient over Bedrock's
// ConverseStream API, including tool-use streaming.
type BedrockLLMClient struct {
	api bedrockConverseAPI
}

var _ StreamingLLMClient = (*BedrockLLMClient)(nil)

func NewBedrockLLMClient(api bedrockConverseAPI) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api}
}

func (c *BedrockLLMClient) CompleteStream(ctx context.Context, req LLMRequest) (<-chan StreamChunk, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("conversation: bedrock model id is required")
	}

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if content := strings.TrimSpace(msg.Content); content != "" {
				systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: content})
			}
		case RoleUser:
			if content := strings.TrimSpace(msg.Content); content != "" {
				messages = append(messages, brtypes.Message{
					Role: brtypes.ConversationRoleUser,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: content},
					},
				})
			}
		case RoleAssistant:
			blocks := assistantBlocks(msg)
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: blocks,
			})
		case RoleTool:
			// Converse carries tool results as user-role tool-result blocks.
			messages = append(messages, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberToolResult{
						Value: brtypes.ToolResultBlock{
							ToolUseId: aws.String(msg.ToolCallID),
							Content: []brtypes.ToolResultContentBlock{
								&brtypes.ToolResultContentBlockMemberText{Value: msg.Content},
							},
						},
					},
				},
			})
		default:
			return nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.Model),
		System:   systemBlocks,
		Messages: messages,
	}
	if cfg := toolConfig(req.Tools); cfg != nil {
		input.ToolConfig = cfg
	}
	if inference := inferenceConfig(req); inference != nil {
		input.InferenceConfig = inference
	}

	out, err := c.api.ConverseStream(ctx, input)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 32)

	go func() {
		defer close(chunks)

		stream := out.GetStream()
		if stream == nil {
			chunks <- StreamChunk{Error: errors.New("conversation: bedrock stream is nil"), Done: true}
			return
		}
		defer stream.Close()

		var (
			usage      TokenUsage
			stopReason string
			// toolStarts tracks which content-block indexes opened a tool-use
			// block so argument deltas can be attributed.
			toolStarts = map[int]struct{}{}
		)
		for event := range stream.Events() {
			switch v := event.(type) {
			case *brtypes.ConverseStreamOutputMemberContentBlockStart:
				start, ok := v.Value.Start.(*brtypes.ContentBlockStartMemberToolUse)
				if !ok {
					continue
				}
				delta := ToolUseDelta{
					Index: int(aws.ToInt32(v.Value.ContentBlockIndex)),
					ID:    aws.ToString(start.Value.ToolUseId),
					Name:  aws.ToString(start.Value.Name),
				}
				toolStarts[delta.Index] = struct{}{}
				chunks <- StreamChunk{ToolUse: &delta}
			case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
				index := int(aws.ToInt32(v.Value.ContentBlockIndex))
				switch delta := v.Value.Delta.(type) {
				case *brtypes.ContentBlockDeltaMemberText:
					chunks <- StreamChunk{Text: delta.Value}
				case *brtypes.ContentBlockDeltaMemberToolUse:
					if _, started := toolStarts[index]; !started {
						continue
					}
					chunks <- StreamChunk{ToolUse: &ToolUseDelta{
						Index:     index,
						Arguments: aws.ToString(delta.Value.Input),
					}}
				}
			case *brtypes.ConverseStreamOutputMemberMessageStop:
				stopReason = string(v.Value.StopReason)
			case *brtypes.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					usage = TokenUsage{
						InputTokens:  int32OrZero(v.Value.Usage.InputTokens),
						OutputTokens: int32OrZero(v.Value.Usage.OutputTokens),
						TotalTokens:  int32OrZero(v.Value.Usage.TotalTokens),
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Error: err, Done: true}
			return
		}

		chunks <- StreamChunk{Done: true, StopReason: stopReason, Usage: usage}
	}()

	return chunks, nil
}

// assistantBlocks rebuilds the content blocks of a prior assistant turn: its
// text plus one tool-use block per recorded call.
func assistantBlocks(msg Message) []brtypes.ContentBlock {
	var blocks []brtypes.ContentBlock
	if content := strings.TrimSpace(msg.Content); content != "" {
		blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: content})
	}
	for _, call := range msg.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args == nil {
			args = map[string]any{}
		}
		blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
			Value: brtypes.ToolUseBlock{
				ToolUseId: aws.String(call.ID),
				Name:      aws.String(call.Name),
				Input:     document.NewLazyDocument(args),
			},
		})
	}
	return blocks
}

func toolConfig(specs []ToolSpec) *brtypes.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(spec.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(spec.InputSchema),
				},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

func inferenceConfig(req LLMRequest) *brtypes.InferenceConfiguration {
	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Allow callers to omit temperature by passing a negative value.
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		return nil
	}
	return inference
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
