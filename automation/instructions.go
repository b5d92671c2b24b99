package automation

// 指令文本只描述目标与成功标准，具体值通过 data 传入
const (
	loginInstruction = "On this Discord login page, log into the account using the provided credentials. " +
		"Be careful to enter the email in the email field and the password in the password field, " +
		"then submit the login form and wait until the main Discord interface has fully loaded."

	navigateInstruction = "Open the given Discord channel URL in this browser tab " +
		"and wait until the chat messages are visible."

	postTextInstruction = "In the currently open Discord channel, click into the message input box " +
		"and send a single chat message with the exact text provided. " +
		"Do not add anything else before or after it."

	postImageInstruction = "In the currently open Discord channel, upload the provided image file as an attachment, " +
		"use the exact text provided as its caption, and send it as a single message. " +
		"Do not add anything else to the caption."
)

// Data keys
const (
	KeyEmail    = "email"
	KeyPassword = "password"
	KeyURL      = "url"
	KeyMessage  = "message"
	KeyImage    = "image"
	KeyImageURL = "imageUrl"
)

// Instruction 交给 Agent 的一条指令
type Instruction struct {
	Text string
	Data map[string]string
}

// stepInput 构建指令所需的值
type stepInput struct {
	email      string
	password   string
	channelURL string
	message    string
	imagePath  string
	imageURL   string
}

func buildInstruction(step Step, in stepInput) Instruction {
	switch step.Name {
	case StepLogin:
		return Instruction{
			Text: loginInstruction,
			Data: map[string]string{KeyEmail: in.email, KeyPassword: in.password},
		}
	case StepNavigate:
		return Instruction{
			Text: navigateInstruction,
			Data: map[string]string{KeyURL: in.channelURL},
		}
	default:
		if step.Upload {
			return Instruction{
				Text: postImageInstruction,
				Data: map[string]string{
					KeyImage:    in.imagePath,
					KeyImageURL: in.imageURL,
					KeyMessage:  in.message,
				},
			}
		}
		return Instruction{
			Text: postTextInstruction,
			Data: map[string]string{KeyMessage: in.message},
		}
	}
}
