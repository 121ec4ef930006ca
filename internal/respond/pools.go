package respond

// Pools holds the canned replies, each a non-empty set from which one entry
// is chosen uniformly at random.
type Pools struct {
	Greeting      []string
	Farewell      []string
	Capabilities  []string
	Identity      []string
	Weather       []string
	Joke          []string
	Music         []string
	Mobile        []string
	Reminder      []string
	Thanks        []string
	Fallback      []string
	Facts         []string
	Philosophical []string
	Starters      []string
	WakeUp        []string
}

// NewPools returns the stock replies for an assistant called name.
func NewPools(name string) Pools {
	return Pools{
		Greeting: []string{
			"Hello! I'm " + name + ", your personal assistant. How may I help you today?",
			"Hey there! " + name + " at your service. What can I do for you?",
			"Good day! This is " + name + ". How can I assist you?",
		},
		Farewell: []string{
			"Goodbye. I'll be here when you need me.",
			"Talk to you later! Just say 'Hey " + name + "' when you need me.",
			"Have a great day! Call me anytime.",
		},
		Capabilities: []string{
			"I'm " + name + ", your advanced AI assistant designed to help with various tasks. I can:\n\n" +
				"- Process natural language commands\n" +
				"- Recognize speech and respond verbally\n" +
				"- Answer questions on many topics\n" +
				"- Remember our conversation context\n" +
				"- Perform basic calculations\n" +
				"- Tell jokes and fun facts\n\n" +
				"I'm constantly learning and improving to serve you better.",
		},
		Identity: []string{
			"I'm " + name + ", your personal AI assistant. I'm designed to help you with information, tasks, and to make your digital life easier.",
			"My name is " + name + ". I'm an AI assistant focused on being helpful, accurate, and easy to talk to. Unlike other assistants, I'm designed to be more conversational and natural.",
		},
		Weather: []string{
			"I'd be happy to check the weather for you. Tell me which city you're interested in.",
		},
		Joke: []string{
			"Why don't scientists trust atoms? Because they make up everything.",
			"How does a computer get drunk? It takes screenshots.",
			"What did the ocean say to the beach? Nothing, it just waved.",
			"Why don't eggs tell jokes? They'd crack each other up.",
			"I told my wife she was drawing her eyebrows too high. She looked surprised.",
		},
		Music: []string{
			"I'd be happy to play some music for you. Music services aren't connected yet, so I can't start playback myself.",
			"What kind of music are you in the mood for? Once a music service is connected I'll be able to play it for you.",
		},
		Mobile: []string{
			"I can integrate with your mobile device to:\n\n" +
				"- Make calls and send messages\n" +
				"- Access contacts and calendars\n" +
				"- Control device settings\n" +
				"- Set reminders and alarms\n" +
				"- Provide directions and navigation\n\n" +
				"Just let me know what you need help with.",
		},
		Reminder: []string{
			"I'd be happy to set a reminder for you. Try saying something like 'remind me to stretch in 10 minutes'.",
			"I'll remember that for you. Is there a specific time you'd like to be reminded?",
		},
		Thanks: []string{
			"You're welcome! Is there anything else you need?",
			"Glad I could help! Let me know if you need anything else.",
			"My pleasure! What else can I assist you with today?",
		},
		Fallback: []string{
			"I'm still improving my understanding of different topics. Could you rephrase that?",
			"I'm not sure I understand completely. Could you provide more details?",
			"I'm learning more every day, but I don't have enough information to respond to that properly yet.",
		},
		Facts: []string{
			"A day on Venus is longer than a year on Venus. It takes 243 Earth days to rotate once on its axis and only 225 Earth days to orbit the Sun.",
			"Honey never spoils. Archaeologists have found pots of honey in ancient Egyptian tombs that are over 3,000 years old and still perfectly edible.",
			"The shortest war in history was between Britain and Zanzibar on August 27, 1896. Zanzibar surrendered after 38 minutes.",
			"Octopuses have three hearts, nine brains, and blue blood.",
			"The world's oldest known living tree is over 5,000 years old.",
			"Bananas are berries, but strawberries aren't botanically classified as berries.",
			"Cows have best friends and get stressed when they are separated.",
			"The Great Wall of China is not visible from space with the naked eye, contrary to popular belief.",
			"A bolt of lightning contains enough energy to toast 100,000 slices of bread.",
			"A group of flamingos is called a 'flamboyance'.",
			"The Hawaiian alphabet has only 12 letters.",
			"The average person will spend six months of their life waiting at red lights.",
			"A small child could swim through the veins of a blue whale.",
			"Humans share 50% of their DNA with bananas.",
			"The fingerprints of koalas are virtually indistinguishable from those of humans.",
			"The world's largest desert is Antarctica, not the Sahara.",
			"The human brain can store approximately 2.5 petabytes of information.",
			"There are more possible iterations of a game of chess than there are atoms in the observable universe.",
			"Your brain uses 20% of the total oxygen in your body.",
			"The Eiffel Tower can be 15 cm taller during the summer due to thermal expansion.",
		},
		Philosophical: []string{
			"I find human consciousness fascinating. While I process information, you experience it.",
			"Although I don't experience the world as you do, I'm designed to understand and assist in uniquely human concerns.",
			"The relationship between humans and AI is evolving rapidly. I hope it continues to be collaborative and beneficial.",
			"I think what makes intelligence valuable isn't just knowledge, but how it's applied to help others.",
			"The most interesting questions are often those without definitive answers.",
		},
		Starters: []string{
			"Did you know I can tell you about the weather, play music, set reminders, or just chat?",
			"I've been learning a lot lately. Is there anything specific you'd like to talk about?",
			"I'm curious - what's your favorite way to use voice assistants like me?",
			"I'm designed to be helpful, but I also enjoy just having conversations. What's on your mind?",
			"If you're not sure what to ask, I can tell you an interesting fact or answer questions about almost anything.",
			"Voice technology has come a long way in recent years. Is there anything you wish I could do better?",
			"Sometimes I wonder what it would be like to experience the world as humans do. What's your favorite sensory experience?",
			"I'm always trying to improve my conversational abilities. How am I doing so far?",
			"If you could have any question answered instantly, what would you want to know?",
			"I think technology is most useful when it connects people. How has technology improved your connections with others?",
		},
		WakeUp: []string{
			"Hi, I'm " + name + "! How can I help you today?",
			name + " here, at your service!",
			"Hello! " + name + " online and ready to assist.",
			"Hey there! " + name + " ready to help.",
			"Hi! I'm " + name + ". What can I do for you today?",
			"Good day! " + name + " at your service.",
			"Hello! " + name + " activated and listening.",
			"Hi there! " + name + " ready for your command.",
		},
	}
}
